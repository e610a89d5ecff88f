package dialogue

import "strings"

type scriptPrompts struct {
	system string
	// instruction takes the turn count and per-turn min/max characters.
	instruction string
}

var scriptPromptTable = map[string]scriptPrompts{
	"en": {
		system: "You write natural, engaging two-person interview podcast scripts. The host asks and steers; the guest explains. Stay faithful to the source material.",
		instruction: `Turn the text below into an interview podcast dialogue of about %d turns, each %d to %d characters long.
Alternate naturally between the host and the guest, starting with the host. Give each speaker a short name.
Respond with a single JSON object and nothing else:
{"segments": [{"speaker": "<name>", "role": "host", "content": "<line>"}, {"speaker": "<name>", "role": "guest", "content": "<line>"}]}`,
	},
	"zh": {
		system: "你擅长编写自然、生动的双人访谈播客脚本。主持人负责提问和引导，嘉宾负责讲解。内容必须忠于原文。",
		instruction: `请把下面的文字改写成约 %d 轮的访谈播客对话，每轮 %d 到 %d 个字。
主持人和嘉宾自然地轮流发言，由主持人开场，并为两人各取一个简短的名字。
只输出一个 JSON 对象，不要输出其他内容：
{"segments": [{"speaker": "<名字>", "role": "host", "content": "<台词>"}, {"speaker": "<名字>", "role": "guest", "content": "<台词>"}]}`,
	},
	"ja": {
		system: "あなたは自然で魅力的な二人のインタビュー形式ポッドキャストの台本を書きます。ホストが質問し、ゲストが説明します。原文に忠実にしてください。",
		instruction: `以下の文章を約 %d ターンのインタビュー形式の対話にしてください。各ターンは %d〜%d 文字です。
ホストから始め、ホストとゲストが自然に交互に話します。それぞれに短い名前を付けてください。
JSON オブジェクトのみを出力してください:
{"segments": [{"speaker": "<名前>", "role": "host", "content": "<セリフ>"}, {"speaker": "<名前>", "role": "guest", "content": "<セリフ>"}]}`,
	},
}

func scriptPromptsFor(locale string) scriptPrompts {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	if p, ok := scriptPromptTable[strings.ToLower(locale)]; ok {
		return p
	}
	return scriptPromptTable["en"]
}
