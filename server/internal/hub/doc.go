// Package hub is the WebSocket subscription hub. It tracks which connection
// watches which line, runs one generation worker per active line
// (produce snapshot → diff → replace previous → broadcast), and fans
// ChangeSets out to the interested subscribers only. Lines with no
// subscribers generate nothing.
package hub
