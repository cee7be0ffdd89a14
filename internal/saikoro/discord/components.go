package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// DiceOption is the name of the slash command option holding the notation.
const DiceOption = "dice"

// Header is the content of the control message.
const Header = "🎲 Pick the dice to count and an effect die, then press Ok."

// ApplicationCommand describes the slash command that starts a roll.
func ApplicationCommand(name string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: "Roll dice and pick which ones count",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        DiceOption,
			Description: "Dice notation, e.g. 2d6 d8 20",
			Required:    true,
		}},
	}
}

// Components converts control rows into action rows of buttons. Control ids
// become custom ids, so clicks decode back with view.Decode.
func Components(rows []view.Row) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, discordgo.Button{
				CustomID: c.ID,
				Label:    c.Label,
				Style:    buttonStyle(c.Style),
				Disabled: c.Disabled,
			})
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

func buttonStyle(s view.Style) discordgo.ButtonStyle {
	switch s {
	case view.SelectedNormal:
		return discordgo.PrimaryButton
	case view.SelectedEffect, view.Confirm:
		return discordgo.SuccessButton
	default:
		return discordgo.SecondaryButton
	}
}
