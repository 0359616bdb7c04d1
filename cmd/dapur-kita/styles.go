package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(6)
	nameStyle    = lipgloss.NewStyle().Bold(true)
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	fieldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Width(20)
)
