// 包 pkk：公共地籍图要素信息查询（按地块编号取属性、范围与中心点）
package pkk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrTimeout 为唯一向上传播的查询错误，调用方可据此重试
	ErrTimeout     = errors.New("pkk: request timeout")
	ErrInvalidCode = errors.New("pkk: invalid cadastral code")
	ErrAreaType    = errors.New("pkk: unknown area type")
)

// AreaType 为要素图层编号
type AreaType int

const (
	Parcel          AreaType = 1
	Quarter         AreaType = 2
	District        AreaType = 3
	Okrug           AreaType = 4
	Building        AreaType = 5
	TerritorialZone AreaType = 6
	Border          AreaType = 7
	GOK             AreaType = 9
	ZOUIT           AreaType = 10
	Forest          AreaType = 12
	RedLine         AreaType = 13
	SRZU            AreaType = 15
	OEZ             AreaType = 16
)

// AreaTypes 按名称索引图层编号，同时收录俄文原名
var AreaTypes = map[string]AreaType{
	"parcel":           Parcel,
	"quarter":          Quarter,
	"district":         District,
	"okrug":            Okrug,
	"building":         Building,
	"territorial_zone": TerritorialZone,
	"border":           Border,
	"gok":              GOK,
	"zouit":            ZOUIT,
	"forest":           Forest,
	"red_line":         RedLine,
	"srzu":             SRZU,
	"oez":              OEZ,

	"Участки":       Parcel,
	"Кварталы":      Quarter,
	"Районы":        District,
	"Округа":        Okrug,
	"ОКС":           Building,
	"Тер. зоны":     TerritorialZone,
	"Границы":       Border,
	"ГОК":           GOK,
	"ЗОУИТ":         ZOUIT,
	"Лес":           Forest,
	"Красные линии": RedLine,
	"СРЗУ":          SRZU,
	"ОЭЗ":           OEZ,
}

// ParseAreaType：接受数字编号或名称，空串为地块
func ParseAreaType(s string) (AreaType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Parcel, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		for _, t := range AreaTypes {
			if int(t) == n {
				return t, nil
			}
		}
		return 0, fmt.Errorf("%w: %d", ErrAreaType, n)
	}
	if t, ok := AreaTypes[s]; ok {
		return t, nil
	}
	if t, ok := AreaTypes[strings.ToLower(s)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrAreaType, s)
}

// 文档注释：规范化地籍编号
// 背景：服务端按去掉前导零的编号检索，例如 38:36:021:1106 → 38:36:21:1106。
// 约束：仅对纯数字分段去前导零，其他分段原样保留；空编号或空分段返回 ErrInvalidCode。
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrInvalidCode
	}
	segs := strings.Split(code, ":")
	for i, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
		if isDigits(s) {
			s = strings.TrimLeft(s, "0")
			if s == "" {
				s = "0"
			}
		}
		segs[i] = s
	}
	return strings.Join(segs, ":"), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
