// Package extensibility holds pluggable building blocks for charts and
// machines: property-expression conditions, a logging action wrapper and
// external event sources.
package extensibility
