// Package maintenance drives the periodic Maintain calls that caches and
// pools rely on for age-based eviction. Targets register by name; the driver
// runs them one after another on a single ticker goroutine.
package maintenance
