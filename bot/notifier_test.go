package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ssugameworks/ratedvc/models"
)

type fakeSender struct {
	channel string
	embeds  []*discordgo.MessageEmbed
	err     error
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channel = channelID
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{}, nil
}

func testVC() *models.VirtualContest {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.VirtualContest{ID: 7, ContestID: 1900, StartTime: start, FinishTime: start.Add(2 * time.Hour)}
}

func testRanklist() *models.Ranklist {
	contest := &models.Contest{ID: 1900, Name: "Codeforces Round 900", URL: "https://codeforces.com/contest/1900"}
	rows := []models.StandingRow{
		{Rank: 1, Party: models.Party{Handles: []string{"alice"}, ParticipantType: models.ParticipantVirtual}, Points: 3, Penalty: 95},
		{Rank: 2, Party: models.Party{Handles: []string{"a_very_long_handle_name"}, ParticipantType: models.ParticipantVirtual}, Points: 1.5, Penalty: 20},
	}
	return models.NewRanklist(contest, rows, nil, nil, time.Now())
}

func TestBuildStandingsEmbed(t *testing.T) {
	embed := BuildStandingsEmbed(testVC(), testRanklist())

	if !strings.Contains(embed.Title, "#7") {
		t.Errorf("제목에 VC 번호가 있어야 합니다: %s", embed.Title)
	}
	if !strings.Contains(embed.Description, "Codeforces Round 900") {
		t.Errorf("대회 이름이 있어야 합니다: %s", embed.Description)
	}
	if !strings.Contains(embed.Description, "alice") || !strings.Contains(embed.Description, "1.50") {
		t.Errorf("순위표 내용이 있어야 합니다: %s", embed.Description)
	}
	if strings.Contains(embed.Description, "a_very_long_handle_name") {
		t.Error("긴 핸들은 잘려야 합니다")
	}
	if strings.Index(embed.Description, "alice") > strings.Index(embed.Description, "a_very_long") {
		t.Error("순위 순서대로 출력되어야 합니다")
	}

	empty := BuildStandingsEmbed(testVC(), &models.Ranklist{})
	if !strings.Contains(empty.Description, "아직 제출한 참가자가 없습니다") {
		t.Errorf("빈 순위표 안내가 있어야 합니다: %s", empty.Description)
	}
}

func TestBuildResultsEmbed(t *testing.T) {
	result := &models.SettlementResult{
		VC:       testVC(),
		Ranklist: testRanklist(),
		Changes: []models.RatingChange{
			{ParticipantID: "p2", Handle: "bob", OldRating: 1500, NewRating: 1420},
			{ParticipantID: "p1", Handle: "alice", OldRating: 1580, NewRating: 1650},
		},
		Removed: []string{"p3"},
	}

	embed := BuildResultsEmbed(result)

	if len(embed.Fields) != 2 {
		t.Fatalf("변화 2건이 표시되어야 합니다: %d", len(embed.Fields))
	}
	if !strings.Contains(embed.Fields[0].Name, "alice") {
		t.Errorf("변화량이 큰 순서여야 합니다: %s", embed.Fields[0].Name)
	}
	if !strings.Contains(embed.Fields[0].Value, "+70") || !strings.Contains(embed.Fields[0].Value, "Expert") {
		t.Errorf("상승량과 칭호 변화가 표시되어야 합니다: %s", embed.Fields[0].Value)
	}
	if !strings.Contains(embed.Fields[1].Value, "-80") || strings.Contains(embed.Fields[1].Value, "→ **") {
		t.Errorf("칭호가 그대로면 칭호 변화를 표시하지 않아야 합니다: %s", embed.Fields[1].Value)
	}
	if embed.Color != models.RankFor(1650).ColorCode {
		t.Errorf("색상은 1등의 새 칭호 색이어야 합니다: %x", embed.Color)
	}
	if embed.Footer == nil || !strings.Contains(embed.Footer.Text, "1명") {
		t.Errorf("제외된 참가자 수가 표시되어야 합니다: %+v", embed.Footer)
	}
}

func TestDiscordNotifierSends(t *testing.T) {
	sender := &fakeSender{}
	notifier := newDiscordNotifierWithSender(sender, "chan-1")

	if err := notifier.VCStandings(context.Background(), testVC(), testRanklist()); err != nil {
		t.Fatalf("전송 실패: %v", err)
	}
	if err := notifier.VCResults(context.Background(), &models.SettlementResult{VC: testVC()}); err != nil {
		t.Fatalf("전송 실패: %v", err)
	}
	if sender.channel != "chan-1" || len(sender.embeds) != 2 {
		t.Errorf("설정된 채널로 2건이 전송되어야 합니다: %s %d", sender.channel, len(sender.embeds))
	}

	sender.err = fmt.Errorf("missing access")
	if err := notifier.VCResults(context.Background(), &models.SettlementResult{VC: testVC()}); err == nil {
		t.Error("전송 실패는 오류로 반환되어야 합니다")
	}
	if err := notifier.Close(); err != nil {
		t.Errorf("세션 없는 Close는 오류가 없어야 합니다: %v", err)
	}
}
