package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	botutils "github.com/smysle/sakura-raffle-go/internal/bot/utils"
	"github.com/smysle/sakura-raffle-go/internal/service"
)

func TestAnnouncementPhoto(t *testing.T) {
	t.Run("奖品图片优先", func(t *testing.T) {
		photo := announcementPhoto(service.Announcement{Text: "t", ImagePath: "media/a.png", Board: []byte{1}})
		require.NotNil(t, photo)
		assert.Equal(t, "media/a.png", photo.File.FileLocal)
	})

	t.Run("号码牌", func(t *testing.T) {
		photo := announcementPhoto(service.Announcement{Text: "t", Board: []byte{1, 2}})
		require.NotNil(t, photo)
		assert.NotNil(t, photo.File.FileReader)
	})

	t.Run("纯文本", func(t *testing.T) {
		assert.Nil(t, announcementPhoto(service.Announcement{Text: "t"}))
	})

	t.Run("说明按图片上限截断", func(t *testing.T) {
		long := strings.Repeat("号", botutils.MaxCaptionLength*2)
		photo := announcementPhoto(service.Announcement{Text: long, Board: []byte{1}})
		require.NotNil(t, photo)
		assert.Len(t, []rune(photo.Caption), botutils.MaxCaptionLength)
	})
}
