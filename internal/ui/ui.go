package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	WorkingView
	ResultView
)

type action int

const (
	actionSync action = iota
	actionRevert
	actionDedupe
	actionRefresh
)

func (a action) String() string {
	switch a {
	case actionSync:
		return "Sync"
	case actionRevert:
		return "Revert"
	case actionDedupe:
		return "Remove duplicates from"
	case actionRefresh:
		return "Refresh library"
	default:
		return ""
	}
}

// Engine is the part of [tasks.Engine] the TUI drives.
type Engine interface {
	Playlists(types ...models.PlaylistType) ([]models.Playlist, error)
	PlaylistTracks(id string) ([]models.Track, error)
	StoredCredential() (models.Credential, error)
	SyncPlaylist(ctx context.Context, cred models.Credential, id string) (*tasks.PlaylistResult, error)
	RevertPlaylist(ctx context.Context, cred models.Credential, id string) (*tasks.PlaylistResult, error)
	RemoveDuplicates(ctx context.Context, cred models.Credential, id string) (*tasks.PlaylistResult, error)
	RefreshLibrary(ctx context.Context, cred models.Credential, progress chan<- tasks.ProgressUpdate) (*tasks.RefreshResult, error)
}

var _ Engine = (*tasks.Engine)(nil)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	engine       Engine
	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	selected     *models.Playlist
	pending      action
	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	progress     tasks.ProgressUpdate
	result       *tasks.PlaylistResult
	refresh      *tasks.RefreshResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model backed by engine.
func NewModel(ctx context.Context, engine Engine) *Model {
	return &Model{
		ctx:          ctx,
		view:         PlaylistListView,
		engine:       engine,
		playlistList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		trackList:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init loads the local playlists.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case WorkingView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsData)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList.Title = "Playlists"
		return m, m.playlistList.SetItems(items)

	case MsgTracksFetched:
		data := msg.data.(tracksData)
		if data.err != nil {
			m.err = data.err
			m.view = PlaylistListView
			return m, nil
		}
		items := make([]list.Item, len(data.tracks))
		for i, track := range data.tracks {
			items[i] = trackItem{track: track}
		}
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", data.playlist.Name)
		m.view = TrackListView
		return m, m.trackList.SetItems(items)

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgActionComplete:
		data := msg.data.(actionData)
		m.result, m.err = data.result, data.err
		m.view = ResultView
		return m, m.fetchPlaylists()

	case MsgRefreshComplete:
		data := msg.data.(refreshData)
		m.refresh, m.err = data.result, data.err
		m.progressChan, m.done = nil, nil
		m.view = ResultView
		return m, m.fetchPlaylists()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case WorkingView:
		return m.renderWorking()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) selectedPlaylist() *models.Playlist {
	if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
		pl := item.playlist
		return &pl
	}
	return nil
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.pending = actionRefresh
		m.view = WorkingView
		return m, m.startRefresh()
	case key.Matches(msg, m.keys.enter):
		if pl := m.selectedPlaylist(); pl != nil {
			m.selected = pl
			return m, m.fetchTracks(*pl)
		}
	case key.Matches(msg, m.keys.sync):
		if pl := m.selectedPlaylist(); pl != nil {
			return m.begin(pl, actionSync)
		}
	case key.Matches(msg, m.keys.revert):
		if pl := m.selectedPlaylist(); pl != nil {
			return m.confirm(pl, actionRevert)
		}
	case key.Matches(msg, m.keys.dedupe):
		if pl := m.selectedPlaylist(); pl != nil {
			return m.confirm(pl, actionDedupe)
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m.begin(m.selected, actionSync)
	case key.Matches(msg, m.keys.revert):
		return m.confirm(m.selected, actionRevert)
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		return m.begin(m.selected, m.pending)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.enter):
		m.view = PlaylistListView
		m.result = nil
		m.refresh = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) confirm(pl *models.Playlist, a action) (tea.Model, tea.Cmd) {
	m.selected = pl
	m.pending = a
	m.view = ConfirmView
	return m, nil
}

func (m *Model) begin(pl *models.Playlist, a action) (tea.Model, tea.Cmd) {
	if pl == nil {
		return m, nil
	}
	m.selected = pl
	m.pending = a
	m.view = WorkingView
	return m, m.runAction(pl.ID, a)
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.engine.Playlists(models.PlaylistUntracked, models.PlaylistLabel, models.PlaylistMix)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(pl models.Playlist) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.engine.PlaylistTracks(pl.ID)
		return tracksFetchedMsg(pl, tracks, err)
	}
}

func (m *Model) runAction(id string, a action) tea.Cmd {
	return func() tea.Msg {
		cred, err := m.engine.StoredCredential()
		if err != nil {
			return actionCompleteMsg(a, nil, err)
		}

		var res *tasks.PlaylistResult
		switch a {
		case actionSync:
			res, err = m.engine.SyncPlaylist(m.ctx, cred, id)
		case actionRevert:
			res, err = m.engine.RevertPlaylist(m.ctx, cred, id)
		case actionDedupe:
			res, err = m.engine.RemoveDuplicates(m.ctx, cred, id)
		}
		return actionCompleteMsg(a, res, err)
	}
}

func (m *Model) startRefresh() tea.Cmd {
	cred, err := m.engine.StoredCredential()
	if err != nil {
		return func() tea.Msg { return refreshCompleteMsg(nil, err) }
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan, m.done = progress, done

	go func() {
		result, err := m.engine.RefreshLibrary(m.ctx, cred, progress)
		done <- refreshCompleteMsg(result, err)
		close(progress)
	}()

	return m.waitForProgress()
}

// waitForProgress relays the next refresh update, or the refresh result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.sync, m.keys.revert, m.keys.dedupe, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.sync, m.keys.revert, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("%s '%s'?", m.pending, m.selected.Name))

	var info string
	switch m.pending {
	case actionRevert:
		info = fmt.Sprintf("\nThe remote playlist will be overwritten with the %d recorded tracks.\n", m.selected.TrackCount)
	case actionDedupe:
		info = "\nRepeated tracks will be removed from the remote playlist, keeping the first occurrence.\n"
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderWorking() string {
	if m.pending == actionRefresh {
		title := styles.title.Render("Refreshing library")
		phase := "Starting..."
		if m.progress.Message != "" {
			phase = fmt.Sprintf("[%s] %s", m.progress.Phase, m.progress.Message)
		}
		return fmt.Sprintf("%s\n\n%s", title, phase)
	}
	return styles.title.Render(fmt.Sprintf("%s '%s'...", m.pending, m.selected.Name))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("%s failed: %v", m.pending, m.err)), helpView)
	}

	if m.refresh != nil {
		title := styles.ok.Render("✓ Library refreshed")
		info := fmt.Sprintf("\nLiked tracks: %d\nPlaylists: %d", m.refresh.Liked, m.refresh.Playlists)
		if m.refresh.Changed {
			info += "\n" + styles.warn.Render("Some playlists changed remotely and are flagged for sync.")
		}
		return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
	}

	if m.result == nil || m.result.Playlist == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.ok.Render(fmt.Sprintf("✓ %s '%s' complete", m.pending, m.result.Playlist.Name))
	info := fmt.Sprintf("\nSnapshot: %s\nTracks: %d (%+d)", m.result.Changes.SnapshotID, m.result.Playlist.TrackCount, m.result.Changes.TrackCountDelta)
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
