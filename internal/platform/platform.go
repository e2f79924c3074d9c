package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Platform identifies a social network that content can be published to
type Platform string

const (
	Douyin      Platform = "DOUYIN"
	Xiaohongshu Platform = "XIAOHONGSHU"
	Bilibili    Platform = "BILIBILI"
	Weibo       Platform = "WEIBO"
	TikTok      Platform = "TIKTOK"
	WeChat      Platform = "WECHAT"
)

// ErrUnknownPlatform is returned when a platform name is not recognised
var ErrUnknownPlatform = errors.New("unknown platform")

// All returns every supported platform in display order
func All() []Platform {
	return []Platform{Douyin, Xiaohongshu, Bilibili, Weibo, TikTok, WeChat}
}

// Parse converts a case-insensitive name into a Platform
func Parse(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms
func (p Platform) Valid() bool {
	switch p {
	case Douyin, Xiaohongshu, Bilibili, Weibo, TikTok, WeChat:
		return true
	}
	return false
}

// Host returns the public web host used when building platform URLs
func (p Platform) Host() string {
	return strings.ToLower(string(p)) + ".com"
}

func (p Platform) String() string {
	return string(p)
}
