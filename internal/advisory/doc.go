// Package advisory writes the human-facing texts of an incident: the
// one-line summary shown on the dashboard and the advisory message
// recommended for roadside variable message signs.
package advisory
