package summarize

import "strings"

type promptSet struct {
	system     string
	structured string // asks for the JSON object
	prose      string
}

// prompts are keyed by base locale; unknown locales use English.
var prompts = map[string]promptSet{
	"en": {
		system: "You are an assistant that summarizes recorded conversations faithfully. Never invent facts that are not in the transcript.",
		structured: `Summarize the transcript below. Respond with a single JSON object and nothing else:
{"summary": "<one paragraph overview>", "keyPoints": ["..."], "topics": ["..."], "actionItems": ["..."]}
Use empty arrays when a list has no entries.`,
		prose: "Summarize the transcript below in a few short paragraphs. Mention the main topics, conclusions and any follow-up actions.",
	},
	"zh": {
		system: "你是一名会议记录助手，请忠实地总结录音内容，不要编造转写中没有的信息。",
		structured: `请总结下面的转写内容。只输出一个 JSON 对象，不要输出其他内容：
{"summary": "<一段概述>", "keyPoints": ["..."], "topics": ["..."], "actionItems": ["..."]}
如果某个列表没有内容，请返回空数组。`,
		prose: "请用几段简短的文字总结下面的转写内容，包括主要话题、结论和后续事项。",
	},
	"ja": {
		system: "あなたは録音された会話を正確に要約するアシスタントです。文字起こしにない事実を作らないでください。",
		structured: `以下の文字起こしを要約してください。JSON オブジェクトのみを出力してください:
{"summary": "<概要>", "keyPoints": ["..."], "topics": ["..."], "actionItems": ["..."]}
該当がない場合は空の配列にしてください。`,
		prose: "以下の文字起こしを短い段落で要約してください。主な話題、結論、今後の対応を含めてください。",
	},
	"es": {
		system: "Eres un asistente que resume conversaciones grabadas con fidelidad. No inventes hechos que no estén en la transcripción.",
		structured: `Resume la transcripción siguiente. Responde solo con un objeto JSON:
{"summary": "<resumen en un párrafo>", "keyPoints": ["..."], "topics": ["..."], "actionItems": ["..."]}
Usa listas vacías cuando no haya elementos.`,
		prose: "Resume la transcripción siguiente en unos pocos párrafos breves. Menciona los temas principales, las conclusiones y las acciones pendientes.",
	},
}

func promptsFor(locale string) promptSet {
	if p, ok := prompts[baseLocale(locale)]; ok {
		return p
	}
	return prompts["en"]
}

func baseLocale(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
