package pipeline

// NarrowingInstruction tells step 6 what to inject into the LLM's system
// prompt to steer it toward a single concrete next action rather than an
// open-ended scheduling conversation: either a clarifying question to ask
// (with template args) or a pre-bound tool call the model should prefer.
type NarrowingInstruction struct {
	ClarifyTemplate string
	ClarifyArgs     map[string]string
	PreboundTool    string
	PreboundArgs    map[string]any
}

// Narrow inspects the constraint block and hydrated context to decide
// whether the model needs a clarifying question or can be steered straight
// at check_availability with parameters already pinned down.
func Narrow(tc *TurnContext) *NarrowingInstruction {
	if tc.Constraints == nil {
		return nil
	}
	block := tc.Constraints

	if block.DesiredService == "" {
		return &NarrowingInstruction{
			ClarifyTemplate: "which_service",
			ClarifyArgs:     map[string]string{"clinic_id": tc.ClinicID},
		}
	}

	if block.TimeWindow.IsZero() {
		return &NarrowingInstruction{
			ClarifyTemplate: "which_time_window",
			ClarifyArgs:     map[string]string{"service": block.DesiredService},
		}
	}

	args := map[string]any{
		"service":  block.DesiredService,
		"start":    block.TimeWindow.Start.Format("2006-01-02"),
		"end":      block.TimeWindow.End.Format("2006-01-02"),
	}
	if block.DesiredDoctor != "" {
		args["doctor"] = block.DesiredDoctor
	}
	return &NarrowingInstruction{PreboundTool: "check_availability", PreboundArgs: args}
}
