// Package engine runs a recording session end to end.
//
// Run resolves the configured stream, opens the CSV recorder and drives the
// acquisition loop into the live window and the recorder until the
// shutdown controller asks it to stop. Metrics, health and the live view
// are served next to the loop under an errgroup and never hold it up.
//
//	summary, err := engine.Run(ctx, cfg, engine.Options{Logger: logger})
//	fmt.Println(summary)
//
// Every path that opened the recording flushes and closes it before Run
// returns, so the Summary row count always matches the file.
package engine
