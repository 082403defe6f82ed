// Package utils 缓存工具
package utils

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// profileTTL 同一份资料在此时间内不重复写库
const profileTTL = 10 * time.Minute

// profileCache 最近写库的用户资料，只存放展示类数据，不存放彩票可用性
var profileCache = cache.New(profileTTL, 2*profileTTL)

type profile struct {
	fullName string
	username string
}

func profileKey(tg int64) string {
	return "profile:" + strconv.FormatInt(tg, 10)
}

// ProfileSynced 资料与最近一次写库时一致
func ProfileSynced(tg int64, fullName, username string) bool {
	v, ok := profileCache.Get(profileKey(tg))
	if !ok {
		return false
	}
	p, ok := v.(profile)
	return ok && p.fullName == fullName && p.username == username
}

// MarkProfileSynced 记录已写库的资料
func MarkProfileSynced(tg int64, fullName, username string) {
	profileCache.SetDefault(profileKey(tg), profile{fullName: fullName, username: username})
}

// ForgetProfile 清除资料记录，下次访问会重新写库
func ForgetProfile(tg int64) {
	profileCache.Delete(profileKey(tg))
}
