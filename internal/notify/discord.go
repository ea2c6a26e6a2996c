package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/carpool/internal/tripsync"
)

// discordSender is the slice of the Discord session the notifier uses.
type discordSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken string        // bot token without the "Bot " prefix
	Channel  string        // required
	Session  discordSender // optional override for tests
}

// Discord posts transitions as embeds over the REST API; no gateway
// connection is opened.
type Discord struct {
	sess    discordSender
	channel string
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("notify: discord bot token is required")
		}
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		sess = dg
	}
	return &Discord{sess: sess, channel: opts.Channel}, nil
}

func (d *Discord) Notify(ctx context.Context, t tripsync.Transition) error {
	ev := Format(t)
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       parseHexColor(ev.Color),
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Short})
	}
	data := &discordgo.MessageSend{
		Content: ev.Title,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
	if _, err := d.sess.ChannelMessageSendComplex(d.channel, data, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}
