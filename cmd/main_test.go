package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTranscribeCommand_RegistersSubcommands(t *testing.T) {
	cmd := NewTranscribeCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "submit", "status", "delete", "health"}, names)
}
