// ABOUTME: Package agent defines agent descriptors, the provider client boundary,
// ABOUTME: and the ordered roster used for turn selection.
package agent
