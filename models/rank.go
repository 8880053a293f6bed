package models

// RankInfo 레이팅 구간별 칭호 정보
type RankInfo struct {
	Low       int    // 구간 하한 (포함)
	High      int    // 구간 상한 (미포함)
	Title     string // 표시 이름
	Abbr      string // 약어
	ColorCode int    // Discord embed 색상 코드
}

var rankTable = []RankInfo{
	{-1 << 31, 1200, "Newbie", "N", 0x808080},
	{1200, 1400, "Pupil", "P", 0x008000},
	{1400, 1600, "Specialist", "S", 0x03A89E},
	{1600, 1900, "Expert", "E", 0x0000FF},
	{1900, 2100, "Candidate Master", "CM", 0xAA00AA},
	{2100, 2300, "Master", "M", 0xFF8C00},
	{2300, 2400, "International Master", "IM", 0xFF8C00},
	{2400, 2600, "Grandmaster", "GM", 0xFF0000},
	{2600, 3000, "International Grandmaster", "IGM", 0xFF0000},
	{3000, 1<<31 - 1, "Legendary Grandmaster", "LGM", 0xCC0000},
}

// RankFor 레이팅에 해당하는 칭호를 반환합니다
func RankFor(rating int) RankInfo {
	for _, rank := range rankTable {
		if rating >= rank.Low && rating < rank.High {
			return rank
		}
	}
	return rankTable[len(rankTable)-1]
}

// RankChanged 두 레이팅의 칭호가 다른지 확인합니다
func RankChanged(oldRating, newRating int) bool {
	return RankFor(oldRating).Title != RankFor(newRating).Title
}
