package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// embedSender discordgo.Session 중 알림에 필요한 부분
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier VC 중간 순위와 정산 결과를 Discord 채널에 보냅니다
type DiscordNotifier struct {
	sender    embedSender
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier 봇 세션을 열고 알림기를 생성합니다
func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}
	utils.Info("Discord notifier connected (channel %s)", channelID)
	return &DiscordNotifier{sender: session, session: session, channelID: channelID}, nil
}

func newDiscordNotifierWithSender(sender embedSender, channelID string) *DiscordNotifier {
	return &DiscordNotifier{sender: sender, channelID: channelID}
}

// VCStandings 진행 중이거나 채점 대기 중인 VC의 현재 순위를 보냅니다
func (n *DiscordNotifier) VCStandings(ctx context.Context, vc *models.VirtualContest, ranklist *models.Ranklist) error {
	return n.send(BuildStandingsEmbed(vc, ranklist))
}

// VCResults 정산된 VC의 레이팅 변화를 보냅니다
func (n *DiscordNotifier) VCResults(ctx context.Context, result *models.SettlementResult) error {
	return n.send(BuildResultsEmbed(result))
}

func (n *DiscordNotifier) send(embed *discordgo.MessageEmbed) error {
	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		utils.Error("DISCORD API ERROR: Failed to send embed: %v", err)
		return err
	}
	return nil
}

// Close 봇 세션을 닫습니다
func (n *DiscordNotifier) Close() error {
	if n.session == nil {
		return nil
	}
	return n.session.Close()
}

// BuildStandingsEmbed 순위표를 고정폭 표로 만듭니다
func BuildStandingsEmbed(vc *models.VirtualContest, ranklist *models.Ranklist) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf(constants.MsgVCStandingsTitle, vc.ID),
		Description: contestHeader(vc, ranklist),
		Color:       constants.ColorStandings,
	}

	if ranklist == nil || len(ranklist.Rows) == 0 {
		embed.Description += "\n\n" + constants.MsgVCNoRows
		return embed
	}

	var builder strings.Builder
	builder.WriteString("\n```\n")
	builder.WriteString(fmt.Sprintf("%-4s %-*s %*s %*s\n",
		"순위",
		constants.StandingsHandleWidth, "핸들",
		constants.StandingsPointsWidth, "점수",
		constants.StandingsPenaltyWidth, "패널티"))
	for i, row := range ranklist.Rows {
		builder.WriteString(fmt.Sprintf("%-4d %-*s %*s %*d\n",
			i+1,
			constants.StandingsHandleWidth, truncate(row.Handle(), constants.StandingsHandleWidth),
			constants.StandingsPointsWidth, formatPoints(row.Points),
			constants.StandingsPenaltyWidth, row.Penalty))
	}
	builder.WriteString("```")
	embed.Description += builder.String()
	return embed
}

// BuildResultsEmbed 참가자별 레이팅 변화. 변화량이 큰 순서로, 칭호가 바뀌면 표시합니다
func BuildResultsEmbed(result *models.SettlementResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf(constants.MsgVCResultsTitle, result.VC.ID),
		Description: contestHeader(result.VC, result.Ranklist),
		Color:       constants.ColorResults,
	}

	changes := append([]models.RatingChange(nil), result.Changes...)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Delta() > changes[j].Delta()
	})

	for _, change := range changes {
		oldRank, newRank := models.RankFor(change.OldRating), models.RankFor(change.NewRating)
		value := fmt.Sprintf("%d → %d (%s)", change.OldRating, change.NewRating, signed(change.Delta()))
		if models.RankChanged(change.OldRating, change.NewRating) {
			value += "\n" + fmt.Sprintf(constants.MsgVCRankUp, oldRank.Title, newRank.Title)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s %s", deltaEmoji(change.Delta()), change.Handle),
			Value:  value,
			Inline: false,
		})
	}

	if len(changes) > 0 {
		embed.Color = models.RankFor(changes[0].NewRating).ColorCode
	}
	if len(result.Removed) > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(constants.MsgVCRemovedFooter, len(result.Removed)),
		}
	}
	return embed
}

func contestHeader(vc *models.VirtualContest, ranklist *models.Ranklist) string {
	lines := make([]string, 0, 2)
	if ranklist != nil && ranklist.Contest != nil {
		lines = append(lines, fmt.Sprintf(constants.MsgVCContestLine, ranklist.Contest.Name, ranklist.Contest.URL))
	}
	lines = append(lines, fmt.Sprintf(constants.MsgVCFinishLine, utils.FormatDateTime(vc.FinishTime)))
	return strings.Join(lines, "\n")
}

func deltaEmoji(delta int) string {
	if delta >= 0 {
		return constants.EmojiUpArrow
	}
	return constants.EmojiDownArrow
}

func signed(n int) string {
	if n >= 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func formatPoints(points float64) string {
	if points == float64(int64(points)) {
		return fmt.Sprintf("%d", int64(points))
	}
	return fmt.Sprintf("%.2f", points)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
