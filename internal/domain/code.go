package domain

import "strings"

// MaxRoomIDLength 房间码的最大长度。
const MaxRoomIDLength = 32

// NormalizeRoomID 去掉首尾空白并转为大写。所有查找和比较之前都必须先规整。
func NormalizeRoomID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidRoomID 判断规整后的房间码是否合法：非空、不超长、只含字母数字和 '-'。
func ValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLength {
		return false
	}
	for _, r := range id {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}
