// Package ui renders groundlink's terminal output.
//
// Two kinds of output live here. Summaries are "render once" blocks printed
// by the replay and discover commands: a Header banner followed by a table
// of per-source counters. The Dashboard is a Bubble Tea program used by
// "serve --tui" that refreshes link and source tables on every tick and
// shows the dispatcher's status messages as they arrive.
//
// # Usage Pattern
//
//	dash := ui.NewDashboard(ui.DashboardConfig{
//	    Source: d,
//	    Links:  mgr,
//	    Rates:  mon,
//	})
//	unsubscribe := d.Subscribe(dash.Listener(p.Send))
//
// # Logging Integration
//
// Zap output written to stdout corrupts the dashboard. When the dashboard is
// active the serve command only logs to the configured log file.
package ui
