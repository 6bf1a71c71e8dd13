package telegram

import (
	"fmt"
	"strings"

	"lesson_planner_bot/internal/app"
	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
)

const historyPreviewRunes = 300

func formatClasses(entries []app.ClassroomEntry, ws *app.Workspace) string {
	selectedClass, selectedChat := ws.Selection()

	var b strings.Builder
	b.WriteString("Your classrooms:\n")
	for i, e := range entries {
		marker := ""
		if e.Classroom.ID == selectedClass {
			marker = " [selected]"
		}
		fmt.Fprintf(&b, "%d. %s%s%s\n", i+1, e.Classroom.Name, gradeSuffix(e.Classroom.Grade), marker)
		if !ws.IsClassOpen(e.Classroom.ID) {
			continue
		}
		for _, c := range e.Chats {
			fmt.Fprintf(&b, "    - %s\n", chatLabel(c, selectedChat))
		}
	}
	b.WriteString("\nSelect one with /open <number>.")
	return b.String()
}

func formatChats(chats []chat.Chat, selected string) string {
	var b strings.Builder
	b.WriteString("Chats:\n")
	for i, c := range chats {
		fmt.Fprintf(&b, "%d. %s\n", i+1, chatLabel(c, selected))
	}
	b.WriteString("\nSelect one with /chat <number>.")
	return b.String()
}

func chatLabel(c chat.Chat, selected string) string {
	label := c.Title
	if label == "" {
		label = "Untitled chat"
	}
	if c.Pinned {
		label = "[pinned] " + label
	}
	if c.ID == selected {
		label += " [selected]"
	}
	return label
}

func formatStudents(students []classroom.Student) string {
	var b strings.Builder
	b.WriteString("Students:\n")
	for i, s := range students {
		fmt.Fprintf(&b, "%d. %s", i+1, s.FullName)
		if s.CurrentLevel != "" {
			fmt.Fprintf(&b, " (%s)", s.CurrentLevel)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLessons(lessons []classroom.Lesson) string {
	var b strings.Builder
	b.WriteString("Lessons:\n")
	for i, l := range lessons {
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, l.Title, strings.ReplaceAll(string(l.Status), "_", " "))
		if l.ScheduledOn != "" {
			fmt.Fprintf(&b, " on %s", l.ScheduledOn)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(msgs []chat.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		author := "You"
		if m.Role == chat.RoleAssistant {
			author = "Assistant"
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, author, preview(m.Content, historyPreviewRunes))
		if m.LessonTitle != nil {
			fmt.Fprintf(&b, "\n   saved to lesson %q", *m.LessonTitle)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Save a reply with /save <number>.")
	return b.String()
}

func gradeSuffix(grade string) string {
	if grade == "" {
		return ""
	}
	return fmt.Sprintf(" (grade %s)", grade)
}

func preview(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "…"
}
