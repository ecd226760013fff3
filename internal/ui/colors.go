package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/moodmusic/internal/models"
)

const spotifyGreen = "#1DB954"

var styles = theme{
	title: lipgloss.NewStyle().Foreground(lipgloss.Color(spotifyGreen)).Bold(true).MarginBottom(1),
	ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
	err:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F57")).Bold(true),
	warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
	types: map[models.PlaylistType]lipgloss.Style{
		models.PlaylistLabel:     badge(spotifyGreen),
		models.PlaylistMix:       badge("#7D56F4"),
		models.PlaylistUntracked: badge("#626262"),
		models.PlaylistDeleted:   badge("#FF5F57").Strikethrough(true),
	},
}

type theme struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	types map[models.PlaylistType]lipgloss.Style
}

func badge(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Italic(true)
}

// playlistType renders typ in its badge color.
func (t theme) playlistType(typ models.PlaylistType) string {
	if s, ok := t.types[typ]; ok {
		return s.Render(string(typ))
	}
	return string(typ)
}
