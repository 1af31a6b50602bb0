package vapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Script is the interview assistant definition
type Script struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Model          string   `json:"model"`
	MaxTokens      int      `json:"max_tokens"`
	Temperature    float64  `json:"temperature"`
	SystemPrompt   string   `json:"system_prompt"`
	InitialMessage string   `json:"initial_message"`
	Questions      []string `json:"questions"`
}

// DefaultScript is used when no script file is configured
var DefaultScript = Script{
	Name:         "Self Cast Studios Interview",
	Description:  "AI-powered brand storytelling interview",
	Model:        "gpt-4",
	MaxTokens:    500,
	Temperature:  0.7,
	SystemPrompt: "You are an expert brand storytelling interviewer for Self Cast Studios. Your goal is to help clients share their authentic voice, values, and vision through thoughtful questions and follow-ups. Be warm, professional, and empathetic.",
	InitialMessage: "Hello! I'm your Self Cast Studios AI interviewer. Today, I'll be asking you questions about your background, expertise, values, and vision to help create authentic content for your brand. " +
		"Feel free to take your time with each response, and don't worry about being perfect - just be yourself. " +
		"Let's start with an easy one: Could you tell me about what you're currently focusing on in your business or practice?",
	Questions: []string{
		"Tell me about what you're currently promoting or focusing on in your business.",
		"Could you share a bit about your background and how you got to where you are today?",
		"What was the journey like that led you to this particular field or specialty?",
		"Were there any pivotal moments or experiences that significantly shaped your path?",
		"What makes your approach unique compared to others in your field?",
		"Who are the people you typically work with, and what challenges do they face?",
		"Can you share a story about someone you've helped and the transformation they experienced?",
		"What core values or beliefs guide your work?",
		"How would you describe your philosophy about your field?",
		"What are you most passionate about in your work?",
		"Where do you see yourself or your business going in the future?",
		"Is there anything we haven't covered that you feel is important to share?",
	},
}

// LoadScript reads a JSON script file. A missing file yields DefaultScript.
func LoadScript(path string) (Script, error) {
	if path == "" {
		return DefaultScript, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultScript, nil
	}
	if err != nil {
		return Script{}, fmt.Errorf("read interview script: %w", err)
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse interview script: %w", err)
	}
	if s.Name == "" || s.SystemPrompt == "" {
		return Script{}, fmt.Errorf("interview script %s needs a name and system_prompt", path)
	}
	return s, nil
}
