package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ============================================================================
// 收款手机号校验
// ============================================================================
//
// 放款网关按 MSISDN（带国家码、不带 + 号）寻址收款方，
// 这里统一把用户输入规整成 268XXXXXXXX 形式
//
// 规则：
//   - 允许输入带 +、空格、短横线的号码，先剥离
//   - 26876/26878/26879 开头的 11 位号码：已是完整 MSISDN
//   - 76/78/79 开头的 8 位本地号码：补国家码 268
// ============================================================================

const countryCode = "268"

var (
	ErrEmptyPhone   = errors.New("手机号不能为空")
	ErrInvalidPhone = errors.New("手机号格式不正确")

	nonDigit    = regexp.MustCompile(`\D`)
	localMobile = regexp.MustCompile(`^7[689]\d{6}$`)
)

// Format 校验并规整收款手机号，返回 MSISDN
func Format(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPhone
	}

	digits := nonDigit.ReplaceAllString(raw, "")

	if strings.HasPrefix(digits, countryCode) && localMobile.MatchString(digits[len(countryCode):]) {
		return digits, nil
	}

	if localMobile.MatchString(digits) {
		return countryCode + digits, nil
	}

	return "", ErrInvalidPhone
}
