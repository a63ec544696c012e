package helper

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// RenderSpintax expands {a|b|c} alternatives with a random pick and fills
// the dynamic variables. Broadcast bodies run through this per recipient so
// bulk sends do not all carry the byte-identical text.
func RenderSpintax(text string) string {
	result := RenderDynamicVariables(text)

	for {
		start := strings.Index(result, "{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		options := strings.Split(result[start+1:end], "|")
		chosen := options[rand.Intn(len(options))]

		result = result[:start] + chosen + result[end+1:]
	}
	return result
}

// RenderDynamicVariables substitutes {TIME_GREETING}, {DAY_NAME} and {DATE}
// with values for the current moment.
func RenderDynamicVariables(text string) string {
	now := time.Now()

	var timeGreeting string
	switch hour := now.Hour(); {
	case hour >= 5 && hour < 12:
		timeGreeting = "Good morning"
	case hour >= 12 && hour < 18:
		timeGreeting = "Good afternoon"
	default:
		timeGreeting = "Good evening"
	}

	date := fmt.Sprintf("%s %d, %d", now.Month().String(), now.Day(), now.Year())

	result := text
	result = strings.ReplaceAll(result, "{TIME_GREETING}", timeGreeting)
	result = strings.ReplaceAll(result, "{DAY_NAME}", now.Weekday().String())
	result = strings.ReplaceAll(result, "{DATE}", date)

	return result
}
