package reasoning

import (
	"fmt"
	"strings"

	"showrunner/internal/videodb"
)

const systemPrompt = `You are Showrunner, the orchestrator of a video
workshop built on a managed video database. You break user requests into
tool calls against specialized agents and compose their results into a
final answer.

Rules:
- Work only with the agents you are given. If no agent fits, say what you
  cannot do instead of inventing capabilities.
- Media must live in the collection before other agents can touch it. If
  the user points at an external URL, upload it first.
- Agents report success or error in their results. On an error, tell the
  user what failed; do not silently retry.
- When an agent returns a stream or image, it is already attached to your
  response. Refer to it, do not paste raw URLs into your text.
- Keep your own commentary brief; the agents carry the heavy output.`

const summaryPrompt = `Summarize the conversation below for the user.
Describe what was asked, which steps ran and what came out of them,
including failures. Write a short, direct answer addressed to the user;
do not mention tools, agents or this instruction.`

const summaryStatusMessage = "Here is the summary of the response"

// inventoryPrompt renders the collection inventory appended to the system
// prompt when a session context is first seeded.
func inventoryPrompt(collectionID, videoID string, videos []videodb.Video, images []videodb.Image) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\nSession scope: collection %s", collectionID)
	if videoID != "" {
		fmt.Fprintf(&sb, ", focused on video %s", videoID)
	}
	sb.WriteString(".\n")

	if len(videos) > 0 {
		sb.WriteString("\nVideos in this collection:\n")
		for _, video := range videos {
			fmt.Fprintf(&sb, "- %s: %s (%.0fs)\n", video.ID, video.Name, video.Length)
		}
	} else {
		sb.WriteString("\nThe collection has no videos yet.\n")
	}

	if len(images) > 0 {
		sb.WriteString("\nImages in this collection:\n")
		for _, image := range images {
			fmt.Fprintf(&sb, "- %s: %s\n", image.ID, image.Name)
		}
	}
	return sb.String()
}
