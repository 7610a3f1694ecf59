package agent

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalJSON(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{
			Event{Kind: EventAgentStart, InputText: "hi"},
			`{"type":"agent-start","data":{"input_text":"hi"}}`,
		},
		{
			Event{Kind: EventStepStart, Step: 1, MaxSteps: 10},
			`{"type":"step-start","data":{"max_steps":10,"step":1}}`,
		},
		{
			Event{Kind: EventToolCallStart, ToolName: "calculator", ToolCallID: "c1"},
			`{"type":"tool-call-start","data":{"args":{},"tool_call_id":"c1","tool_name":"calculator"}}`,
		},
		{
			Event{Kind: EventAgentFinish},
			`{"type":"agent-finish","data":{"result":""}}`,
		},
		{
			Event{Kind: EventError, Error: "LLM call failed", ErrorType: ErrorTypeLLM},
			`{"type":"error","data":{"error":"LLM call failed","error_type":"llm_error"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Kind), func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}
