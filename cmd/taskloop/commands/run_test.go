package commands

import "testing"

func TestRunCommand_DefaultsToLooping(t *testing.T) {
	cmd := newRunCommand()

	flag := cmd.Flags().Lookup("times")
	if flag == nil {
		t.Fatal("Expected a times flag")
	}
	// An unadorned run keeps iterating until an iteration fails.
	if flag.DefValue != "0" {
		t.Errorf("Expected times to default to 0, got %s", flag.DefValue)
	}
}
