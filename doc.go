// Package thingpad turns marked blocks of an HTML page into live code
// evaluators. A block carrying the classes "thing" and a language marker
// ("js", "risor") holds a source input, an output sink and a drawing
// surface; the widget runs the source as the body of a function that
// receives the surface and its 2D context, and shows the JSON form of the
// returned value, or the error, in the sink.
//
// # Usage
//
// Create an Engine, parse a page and drive its widgets:
//
//	e, err := thingpad.New("thingpad.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	p, err := e.ParsePage(ctx, r)
//	for _, w := range p.Widgets() {
//		w.SetSource("return 1 + 1;")
//		w.KeyDown(ctx, thingpad.KeyEvent{Key: "Enter", Ctrl: true})
//		fmt.Println(w.Output().Output) // 2
//	}
//
// # Triggers
//
// A widget evaluates when it is attached (only if its source is non-empty),
// when the confirm chord ctrl+Enter is pressed in its input, and when the
// input reports a committed change. Attaching also paints one pixel at a
// random position of the surface so a live widget is visible.
//
// # Things and builds
//
// Snippets can be stored as things in SQLite and rendered as pages of
// widgets. [Engine.BuildFiles] renders HTML and markdown documents with
// every widget evaluated, skipping inputs whose content and engine settings
// are unchanged.
package thingpad
