// Package engine implements the scheduling and execution core of taskloop.
//
// A run works on a directory of independent executables ("tasks"). The
// resolver turns the discovered tasks and their declared dependencies into a
// single topological order. The supervisor runs one external command to
// completion or deadline and maps its exit status to a three-valued Outcome
// (OK, RETRY, HALT). The engine walks the resolved order once per attempt,
// invoking optional pre/post hooks around every task, and decides after each
// outcome whether the pass continues, restarts from the first task, or fails
// the whole run. The driver repeats that for a requested number of
// iterations, stopping on the first failed one.
//
// Retry semantics are deliberately coarse: a transient failure anywhere
// restarts the full ordered pass, and the attempt counter is shared by all
// tasks in the run. A task's max_tries threshold is therefore only meaningful
// relative to that shared counter, not as an independent per-task budget.
package engine
