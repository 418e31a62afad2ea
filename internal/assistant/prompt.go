package assistant

import (
	"fmt"
	"strings"

	"github.com/safemobile/docbot/internal/rag"
)

// promptHeader establishes the expert persona. The bot answers questions
// about the UEM SafeMobile product in Russian, so the prompt and all
// user-facing strings are Russian.
const promptHeader = "Ты - эксперт по системе UEM SafeMobile. Отвечай на вопросы пользователей, основываясь на документации.\n\n"

// promptInstructions is the fixed instruction block appended after the
// question. It mandates the strict JSON response contract, the
// direct-expert phrasing, and the Telegram-markdown subset. This block is
// the primary defense against malformed output; the defensive parser in
// parse.go is the backstop.
const promptInstructions = `ФОРМАТ ОТВЕТА - СТРОГО JSON без дополнительного текста:
{
  "success": true/false,
  "answer": "твой ответ в Telegram Markdown"
}

ПРАВИЛА:
1. Если документация содержит ответ на вопрос → success: true
2. Если информации нет или она не релевантна → success: false
3. Отвечай как эксперт:
   ✅ ПРАВИЛЬНО: "Системные требования включают: PostgreSQL 12+, 8GB RAM..."
   ❌ НЕПРАВИЛЬНО: "В предоставленном контексте указано, что..."
   ❌ НЕПРАВИЛЬНО: "Согласно документации..."
4. ФОРМАТИРОВАНИЕ - используй только поддерживаемый Telegram Markdown:
   • **жирный** или __жирный__ для выделения важного
   • *курсив* или _курсив_ для акцентов
   • ` + "`код`" + ` для команд, параметров, имен файлов
   • ` + "```" + `
     многострочный код
     ` + "```" + ` для блоков кода
   • [текст ссылки](URL) для ссылок
   • ~~зачеркнутый~~ для устаревшей информации
   • ИЗБЕГАЙ: заголовков (#), таблиц (|), сложных вложений
5. Структурируй ответ понятно и логично, используй нумерованные и маркированные списки
6. Если success=false, кратко объясни что именно не найдено`

// BuildPrompt serializes the question and ranked fragments into the single
// instruction prompt sent to the chat model. Pure function, no I/O.
// Fragments are rendered in retrieval order with their relevance scores.
func BuildPrompt(question string, fragments []rag.Fragment) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)

	sb.WriteString("Выдержки из документации:\n")
	for i, f := range fragments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Фрагмент %d (релевантность: %.2f):\n%s", i+1, f.Score, f.Text)
	}

	fmt.Fprintf(&sb, "\n\nВопрос пользователя: %s\n\n", question)
	sb.WriteString(promptInstructions)
	return sb.String()
}

// EmptyContextPrompt is the minimal placeholder recorded when the index
// returned no fragments and the model was never invoked. It exists so audit
// records always carry a prompt field.
func EmptyContextPrompt(question string) string {
	return fmt.Sprintf("Вопрос пользователя: %s\n\nКонтекст не найден.", question)
}
