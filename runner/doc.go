// Package runner executes a validated pipeline tree against a user query.
//
// A Runner is constructed once per tree: New validates the tree against the
// keys of the initial state and binds the default model to agents that have
// none. Each call to Stream or Run starts an isolated run with fresh state,
// records it in a core.SessionStore and streams the ordered step events.
//
// Example:
//
//	r, err := runner.New(root, runner.Config{DefaultModel: llm})
//	if err != nil {
//	    return err
//	}
//	res, err := r.Run(ctx, "Write about Go generics")
//	fmt.Println(res.Text())
package runner
