package chat

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

var senderPalette = []lipgloss.Color{
	lipgloss.Color("111"),
	lipgloss.Color("157"),
	lipgloss.Color("216"),
	lipgloss.Color("36"),
	lipgloss.Color("183"),
	lipgloss.Color("230"),
}

var (
	metaColor        = lipgloss.Color("242")
	statusColor      = lipgloss.Color("245")
	errorColor       = lipgloss.Color("203")
	dividerColor     = lipgloss.Color("203")
	pendingColor     = lipgloss.Color("240")
	pinColor         = lipgloss.Color("221")
	systemColor      = lipgloss.Color("244")
	inputPromptColor = lipgloss.Color("111")
	noticeColor      = lipgloss.Color("81")
)

// colorForSender assigns colors in order of first appearance, falling back to
// a hash once the palette has been handed out.
func colorForSender(senderID string, colorMap map[string]lipgloss.Color) lipgloss.Color {
	if color, ok := colorMap[senderID]; ok {
		return color
	}
	var color lipgloss.Color
	if len(colorMap) < len(senderPalette) {
		color = senderPalette[len(colorMap)]
	} else {
		h := fnv.New32a()
		_, _ = h.Write([]byte(senderID))
		color = senderPalette[int(h.Sum32()%uint32(len(senderPalette)))]
	}
	colorMap[senderID] = color
	return color
}
