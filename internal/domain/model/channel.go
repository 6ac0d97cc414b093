package model

// 同期対象の外部チャネル
type Channel string

const (
	ChannelNone   Channel = ""
	ChannelSquare Channel = "square"
	ChannelEbay   Channel = "ebay"
)

// 反対側のチャネルを返す
func (c Channel) Other() Channel {
	switch c {
	case ChannelSquare:
		return ChannelEbay
	case ChannelEbay:
		return ChannelSquare
	default:
		return ChannelNone
	}
}
