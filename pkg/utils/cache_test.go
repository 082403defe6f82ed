package utils

import "testing"

func TestProfileSynced(t *testing.T) {
	const tg = 424242
	ForgetProfile(tg)

	if ProfileSynced(tg, "Anna", "anna") {
		t.Fatal("未记录的资料不应视为已同步")
	}

	MarkProfileSynced(tg, "Anna", "anna")
	tests := []struct {
		name     string
		fullName string
		username string
		want     bool
	}{
		{"资料一致", "Anna", "anna", true},
		{"改名", "Anna K", "anna", false},
		{"改用户名", "Anna", "anna_k", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProfileSynced(tg, tt.fullName, tt.username); got != tt.want {
				t.Errorf("ProfileSynced() = %v, want %v", got, tt.want)
			}
		})
	}

	ForgetProfile(tg)
	if ProfileSynced(tg, "Anna", "anna") {
		t.Error("清除后不应视为已同步")
	}
}
