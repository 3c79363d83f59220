package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

const hotLeadColor = 0xE74C3C

type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAlerter posts an embed to a coach's Discord channel.
type DiscordAlerter struct {
	session   discordSession
	channelID string
}

// NewDiscordAlerter opens a bot session for the given token.
func NewDiscordAlerter(botToken, channelID string) (*DiscordAlerter, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordAlerter{session: session, channelID: channelID}, nil
}

// Alert sends the lead embed.
func (d *DiscordAlerter) Alert(ctx context.Context, a LeadAlert) error {
	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, buildEmbed(a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord alert: %w", err)
	}
	return nil
}

func buildEmbed(a LeadAlert) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "HOT lead: " + a.displayName(),
		Description: a.Email,
		Color:       hotLeadColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Score", Value: strconv.Itoa(a.Score), Inline: true},
			{Name: "Bottleneck", Value: a.Bottleneck, Inline: true},
			{Name: "Confidence", Value: a.Confidence, Inline: true},
			{Name: "Goal", Value: orDash(a.MainGoal), Inline: true},
			{Name: "Start", Value: orDash(a.StartTiming), Inline: true},
			{Name: "Budget", Value: orDash(a.Budget), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Lead " + a.LeadID},
	}
}
