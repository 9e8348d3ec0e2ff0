package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var errorColor = lipgloss.AdaptiveColor{Light: "#D32F2F", Dark: "#E57373"}

// reportError prints err in bold red followed by one line per wrapped cause.
func reportError(w io.Writer, err error) {
	r := lipgloss.NewRenderer(w)
	style := r.NewStyle().Bold(true).Foreground(errorColor)

	fmt.Fprintln(w, style.Render("Error: "+err.Error()))
	for _, cause := range causes(err) {
		fmt.Fprintf(w, "  caused by: %s\n", cause)
	}
}

// causes walks the wrap chain depth first, following every branch of
// errors that wrap more than one error.
func causes(err error) []error {
	var out []error
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if next := u.Unwrap(); next != nil {
			out = append(out, next)
			out = append(out, causes(next)...)
		}
	case interface{ Unwrap() []error }:
		for _, next := range u.Unwrap() {
			out = append(out, next)
			out = append(out, causes(next)...)
		}
	}
	return out
}
