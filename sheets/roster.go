package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/utils"
)

// rosterKey (그룹, 참가자) 쌍. 그룹이 빈 행은 모든 그룹에 적용됩니다
type rosterKey struct {
	group       string
	participant string
}

// Roster 참가자 ID -> 저지 핸들 명단
type Roster struct {
	handles map[rosterKey]string
}

// NewRoster 빈 명단을 만듭니다
func NewRoster() *Roster {
	return &Roster{handles: make(map[rosterKey]string)}
}

// Add 명단에 항목을 추가합니다
func (r *Roster) Add(groupID, participantID, handle string) {
	r.handles[rosterKey{group: utils.NormalizeID(groupID), participant: utils.NormalizeID(participantID)}] = strings.TrimSpace(handle)
}

// Len 항목 수
func (r *Roster) Len() int {
	return len(r.handles)
}

// HandleFor 그룹 전용 항목을 먼저 찾고, 없으면 그룹 공통 항목을 찾습니다
func (r *Roster) HandleFor(ctx context.Context, participantID, groupID string) (string, bool, error) {
	pid := utils.NormalizeID(participantID)
	if handle, ok := r.handles[rosterKey{group: utils.NormalizeID(groupID), participant: pid}]; ok && handle != "" {
		return handle, true, nil
	}
	if handle, ok := r.handles[rosterKey{participant: pid}]; ok && handle != "" {
		return handle, true, nil
	}
	return "", false, nil
}

// ParseRoster 시트 값(첫 행은 헤더)을 명단으로 변환합니다. 그룹 열은 없어도 됩니다
func ParseRoster(values [][]interface{}) (*Roster, error) {
	roster := NewRoster()
	if len(values) == 0 {
		utils.Warn("Roster spreadsheet is empty")
		return roster, nil
	}

	participantCol := findColumn(values[0], constants.RosterParticipantIDColumn)
	handleCol := findColumn(values[0], constants.RosterHandleColumn)
	groupCol := findColumn(values[0], constants.RosterGroupIDColumn)
	if participantCol == -1 {
		return nil, fmt.Errorf("column '%s' not found in roster", constants.RosterParticipantIDColumn)
	}
	if handleCol == -1 {
		return nil, fmt.Errorf("column '%s' not found in roster", constants.RosterHandleColumn)
	}

	for i := 1; i < len(values); i++ {
		row := values[i]
		pid := cell(row, participantCol)
		handle := cell(row, handleCol)
		if pid == "" || handle == "" {
			continue
		}
		if !utils.IsValidHandle(handle) {
			utils.Warn("Skipping roster row %d: invalid handle %q", i+1, handle)
			continue
		}
		roster.Add(cell(row, groupCol), pid, handle)
	}
	return roster, nil
}

func findColumn(headers []interface{}, name string) int {
	for i, header := range headers {
		if s, ok := header.(string); ok && strings.EqualFold(strings.TrimSpace(s), name) {
			return i
		}
	}
	return -1
}

func cell(row []interface{}, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	if s, ok := row[col].(string); ok {
		return utils.SanitizeString(s)
	}
	return utils.SanitizeString(fmt.Sprint(row[col]))
}

// valuesReader 시트 범위 읽기. 테스트에서 대체합니다
type valuesReader func(ctx context.Context) ([][]interface{}, error)

// RosterClient Google Sheets 명단을 주기적으로 다시 읽는 IdentityLookup
type RosterClient struct {
	read     valuesReader
	ttl      time.Duration
	now      func() time.Time
	current  atomic.Pointer[Roster]
	loadedAt atomic.Int64
	loadMu   sync.Mutex
}

// NewRosterClient Google Sheets 클라이언트를 생성합니다
func NewRosterClient(ctx context.Context, credentialsJSON, spreadsheetID, readRange string) (*RosterClient, error) {
	if credentialsJSON == "" {
		return nil, fmt.Errorf("Google credentials not available")
	}
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%s is not set", constants.EnvRosterSpreadsheet)
	}
	if readRange == "" {
		readRange = constants.RosterSheetRange
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	utils.Info("Google Sheets roster client initialized successfully")
	return newRosterClient(func(ctx context.Context) ([][]interface{}, error) {
		resp, err := service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
		}
		return resp.Values, nil
	}), nil
}

func newRosterClient(read valuesReader) *RosterClient {
	return &RosterClient{read: read, ttl: constants.RosterRefreshInterval, now: time.Now}
}

// Reload 시트를 다시 읽습니다. 실패하면 이전 명단을 유지합니다
func (c *RosterClient) Reload(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	return c.reloadLocked(ctx)
}

func (c *RosterClient) reloadLocked(ctx context.Context) error {
	values, err := c.read(ctx)
	if err != nil {
		return err
	}
	roster, err := ParseRoster(values)
	if err != nil {
		return err
	}
	c.current.Store(roster)
	c.loadedAt.Store(c.now().UnixNano())
	utils.Info("Roster loaded: %d entries", roster.Len())
	return nil
}

// roster TTL이 지났으면 다시 읽고 현재 명단을 반환합니다
func (c *RosterClient) roster(ctx context.Context) (*Roster, error) {
	if r := c.current.Load(); r != nil && c.fresh() {
		return r, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if r := c.current.Load(); r != nil && c.fresh() {
		return r, nil
	}
	if err := c.reloadLocked(ctx); err != nil {
		if r := c.current.Load(); r != nil {
			utils.Warn("Roster reload failed, using previous roster: %v", err)
			return r, nil
		}
		return nil, err
	}
	return c.current.Load(), nil
}

func (c *RosterClient) fresh() bool {
	return c.now().Sub(time.Unix(0, c.loadedAt.Load())) < c.ttl
}

// HandleFor IdentityLookup 구현
func (c *RosterClient) HandleFor(ctx context.Context, participantID, groupID string) (string, bool, error) {
	r, err := c.roster(ctx)
	if err != nil {
		return "", false, err
	}
	return r.HandleFor(ctx, participantID, groupID)
}
