package ctxengine

// ModuleOverride carries runtime configuration for one context module.
// Zero-valued fields leave the module's static defaults in effect.
type ModuleOverride struct {
	// Enabled overrides the module's static enabled state when non-nil.
	Enabled *bool

	// Priority overrides the module's static priority when non-nil.
	Priority *int

	// AppendedText is extra operator-provided text appended to the
	// module's formatted output.
	AppendedText string

	// TriggerKeywords force inclusion of a disabled module when any
	// keyword appears in the inbound message.
	TriggerKeywords []string
}

// effectiveEnabled resolves the enabled state for a provider under an override.
func effectiveEnabled(p Provider, ov ModuleOverride) bool {
	if ov.Enabled != nil {
		return *ov.Enabled
	}
	return p.Enabled()
}

// effectivePriority resolves the priority for a provider under an override.
func effectivePriority(p Provider, ov ModuleOverride) int {
	if ov.Priority != nil {
		return *ov.Priority
	}
	return p.Priority()
}
