package model

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ThemeConfig is the persisted display preference of an account.
type ThemeConfig struct {
	Mode string `json:"mode" validate:"required,oneof=light dark"`
}

func DefaultTheme() ThemeConfig {
	return ThemeConfig{Mode: ThemeLight}
}
