package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	cl "forge/internal/cli"
	"forge/internal/game"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const playLogSize = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5A623"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5C6370")).Padding(0, 2)
	levelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F848E"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")).Bold(true)
	holdStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true)
	breakStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true)
)

func newPlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play [weapon_id]",
		Short: "Interactive forge screen for one weapon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Weapon ID")
			if err != nil {
				return err
			}
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			m := newPlayModel(cmd.Context(), newClient(apiBase), sess.AccessToken, id)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

type weaponLoadedMsg struct {
	weapon weaponRow
	gold   int64
}

type enhancedMsg enhancePayload

type playErrMsg struct{ err error }

type playModel struct {
	ctx      context.Context
	client   *cl.Client
	token    string
	weaponID int64

	spinner spinner.Model
	weapon  weaponRow
	gold    int64
	loaded  bool
	busy    bool
	auto    bool
	log     []string
	err     error
}

func newPlayModel(ctx context.Context, client *cl.Client, token string, weaponID int64) playModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle))
	return playModel{ctx: ctx, client: client, token: token, weaponID: weaponID, spinner: s, busy: true}
}

func (m playModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m playModel) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
		defer cancel()
		raw, err := m.client.Weapons(ctx, m.token)
		if err != nil {
			return playErrMsg{err}
		}
		list, err := decodeInto[weaponsPayload](raw)
		if err != nil {
			return playErrMsg{err}
		}
		me, err := m.client.Me(ctx, m.token)
		if err != nil {
			return playErrMsg{err}
		}
		profile, err := decodeInto[game.Profile](me)
		if err != nil {
			return playErrMsg{err}
		}
		for _, w := range list.Weapons {
			if w.ID == m.weaponID {
				return weaponLoadedMsg{weapon: w, gold: profile.Account.Balances.Gold}
			}
		}
		return playErrMsg{fmt.Errorf("weapon %d not found", m.weaponID)}
	}
}

func (m playModel) enhance() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
		defer cancel()
		raw, err := m.client.Enhance(ctx, m.token, m.weaponID, uuid.NewString())
		if err != nil {
			return playErrMsg{err}
		}
		out, err := decodeInto[enhancePayload](raw)
		if err != nil {
			return playErrMsg{err}
		}
		return enhancedMsg(out)
	}
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter", "e", " ":
			if m.busy || !m.loaded || m.weapon.Next == nil {
				return m, nil
			}
			m.busy, m.err = true, nil
			return m, m.enhance()
		case "a":
			m.auto = !m.auto
			if m.auto && !m.busy && m.loaded && m.weapon.Next != nil {
				m.busy, m.err = true, nil
				return m, m.enhance()
			}
			return m, nil
		}
	case weaponLoadedMsg:
		m.weapon, m.gold, m.loaded, m.busy = msg.weapon, msg.gold, true, false
		return m, nil
	case enhancedMsg:
		m.busy = false
		m.weapon = msg.Weapon
		m.gold = msg.GoldRemaining
		m.push(playLine(msg.EnhanceResult, msg.Weapon.Name))
		// Auto mode only rides a success streak.
		if m.auto && msg.Result == game.OutcomeSuccess && m.weapon.Next != nil {
			m.busy = true
			return m, m.enhance()
		}
		m.auto = false
		return m, nil
	case playErrMsg:
		m.busy, m.auto, m.err = false, false, msg.err
		if cl.IsUnauthorized(msg.err) {
			m.err = fmt.Errorf("session expired, run `forge login`")
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *playModel) push(line string) {
	m.log = append(m.log, line)
	if len(m.log) > playLogSize {
		m.log = m.log[len(m.log)-playLogSize:]
	}
}

func playLine(r game.EnhanceResult, name string) string {
	cost := dimStyle.Render(fmt.Sprintf("(-%s)", comma(r.GoldSpent)))
	switch r.Result {
	case game.OutcomeSuccess:
		return okStyle.Render(fmt.Sprintf("SUCCESS  +%d > +%d", r.PreviousLevel, r.NewLevel)) + " " + cost
	case game.OutcomeMaintain:
		return holdStyle.Render(fmt.Sprintf("MAINTAIN +%d", r.NewLevel)) + " " + cost
	case game.OutcomeDestroy:
		return breakStyle.Render(fmt.Sprintf("DESTROY  %s fell from +%d", name, r.PreviousLevel)) + " " + cost
	}
	return string(r.Result)
}

func (m playModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("THE FORGE"))
	b.WriteString("\n\n")

	if !m.loaded {
		if m.err != nil {
			b.WriteString(breakStyle.Render(m.err.Error()))
			b.WriteString("\n\n" + dimStyle.Render("q quit") + "\n")
			return b.String()
		}
		b.WriteString(m.spinner.View() + " loading weapon...\n")
		return b.String()
	}

	name := m.weapon.Name
	if m.weapon.Hidden {
		name = lipgloss.NewStyle().Foreground(lipgloss.Color("#C678DD")).Bold(true).Render(name)
	}
	panel := []string{
		fmt.Sprintf("%s  %s", name, levelStyle.Render(fmt.Sprintf("+%d", m.weapon.Level))),
		fmt.Sprintf("power %d   sells for %s gold", m.weapon.Power, comma(m.weapon.SellPrice)),
		fmt.Sprintf("gold  %s", comma(m.gold)),
	}
	if next := m.weapon.Next; next != nil {
		panel = append(panel, fmt.Sprintf("next  %s gold   %s / %s / %s",
			comma(next.Cost),
			okStyle.Render(fmt.Sprintf("%d%%", next.Success)),
			holdStyle.Render(fmt.Sprintf("%d%%", next.Maintain)),
			breakStyle.Render(fmt.Sprintf("%d%%", next.Destroy)),
		))
	} else {
		panel = append(panel, okStyle.Render("max level reached"))
	}
	b.WriteString(panelStyle.Render(strings.Join(panel, "\n")))
	b.WriteString("\n\n")

	for _, line := range m.log {
		b.WriteString(line + "\n")
	}
	if len(m.log) > 0 {
		b.WriteString("\n")
	}

	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " striking...\n")
	case m.err != nil:
		b.WriteString(breakStyle.Render(m.err.Error()) + "\n")
	}
	mode := "off"
	if m.auto {
		mode = "on"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("enter enhance   a auto (%s)   q quit", mode)) + "\n")
	return b.String()
}
