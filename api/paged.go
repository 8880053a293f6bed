package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/utils"
)

// page offset 기반 목록 응답
type page struct {
	Objects []json.RawMessage `json:"objects"`
}

// PagedFetcher offset/limit 페이지네이션 엔드포인트에서 전체 결과를 모읍니다
type PagedFetcher struct {
	caller   Caller
	pageSize int
}

// NewPagedFetcher 새로운 PagedFetcher 인스턴스를 생성합니다
func NewPagedFetcher(caller Caller, pageSize int) *PagedFetcher {
	if pageSize <= 0 {
		pageSize = constants.PageSize
	}
	return &PagedFetcher{caller: caller, pageSize: pageSize}
}

// PageSize 한 페이지의 크기
func (f *PagedFetcher) PageSize() int {
	return f.pageSize
}

// FetchAll offset 0부터 limit 미만의 페이지가 나올 때까지 차례로 조회해 이어 붙입니다.
// 호출 사이에 공유하는 커서가 없으므로 같은 파라미터로 다시 호출하면 처음부터 새로 조회합니다
func (f *PagedFetcher) FetchAll(ctx context.Context, endpoint string, params Params) ([]json.RawMessage, error) {
	query := params.Clone()
	query["limit"] = strconv.Itoa(f.pageSize)

	var results []json.RawMessage
	for offset := 0; ; offset += f.pageSize {
		query["offset"] = strconv.Itoa(offset)

		body, err := f.caller.Call(ctx, endpoint, query)
		if err != nil {
			if offset == 0 {
				return nil, err
			}
			return nil, errors.NewRequestFailedError(
				fmt.Sprintf("%s page at offset %d failed after %d objects", endpoint, offset, len(results)), err)
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, errors.NewRequestFailedError(fmt.Sprintf("%s 페이지 파싱 실패", endpoint), err)
		}
		if p.Objects == nil {
			if offset == 0 {
				return nil, errors.NewRequestFailedError(fmt.Sprintf("%s response has no objects", endpoint), nil)
			}
			break
		}

		results = append(results, p.Objects...)
		if len(p.Objects) < f.pageSize {
			break
		}
	}

	utils.Debug("Fetched %d objects from %s", len(results), endpoint)
	return results, nil
}
