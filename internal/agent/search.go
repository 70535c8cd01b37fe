package agent

import (
	"context"
	"encoding/json"

	"showrunner/internal/session"
	"showrunner/internal/videodb"
	"showrunner/pkg/logging"
)

type semanticSearcher interface {
	SemanticSearch(ctx context.Context, collectionID string, req videodb.SearchRequest) (*videodb.SearchResults, error)
}

// SearchAgent runs semantic search over indexed spoken content and returns
// matched segments plus a compiled stream of all matches.
type SearchAgent struct {
	vdb    semanticSearcher
	logger logging.Logger
}

func NewSearchAgent(vdb semanticSearcher, logger logging.Logger) *SearchAgent {
	return &SearchAgent{vdb: vdb, logger: logger}
}

func (a *SearchAgent) Name() string { return "search" }

func (a *SearchAgent) Description() string {
	return "Searches spoken content semantically across the collection, or within one video when video_id is given."
}

func (a *SearchAgent) Parameters() map[string]interface{} {
	return params(map[string]interface{}{
		"query":         prop("string", "What to search for"),
		"video_id":      prop("string", "Restrict the search to one video"),
		"collection_id": prop("string", "Collection to search"),
	}, "query")
}

type searchArgs struct {
	Query        string `json:"query"`
	VideoID      string `json:"video_id"`
	CollectionID string `json:"collection_id"`
}

func (a *SearchAgent) Run(ctx context.Context, rawArgs json.RawMessage, out *session.OutputMessage) Response {
	var args searchArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return Errorf("invalid search arguments: %v", err)
	}
	if args.Query == "" {
		return Errorf("search requires a query")
	}

	content := session.NewSearchResultsContent(a.Name())
	content.StatusMessage = "Searching..."
	out.AddContent(content)

	results, err := a.vdb.SemanticSearch(ctx, args.CollectionID, videodb.SearchRequest{
		Query:   args.Query,
		VideoID: args.VideoID,
	})
	if err != nil {
		a.logger.WithError(err).WithField("query", args.Query).Error("Search failed")
		out.Update(func(body *session.BaseMessage) {
			last := &body.Content[len(body.Content)-1]
			last.Status = session.StatusError
			last.StatusMessage = "Search failed"
		})
		return Errorf("search failed: %v", err)
	}
	if len(results.Shots) == 0 {
		out.Update(func(body *session.BaseMessage) {
			last := &body.Content[len(body.Content)-1]
			last.Status = session.StatusError
			last.StatusMessage = "No results found"
		})
		return Errorf("no results found for %q", args.Query)
	}

	grouped := groupShotsByVideo(results.Shots)
	out.Update(func(body *session.BaseMessage) {
		last := &body.Content[len(body.Content)-1]
		last.Status = session.StatusSuccess
		last.StatusMessage = "Here are the results"
		last.SearchResults = grouped
	})

	if results.CompiledURL != "" {
		video := session.NewVideoContent(a.Name())
		video.Status = session.StatusSuccess
		video.StatusMessage = "Compilation of all matches"
		video.Video = &session.VideoData{
			StreamURL: results.CompiledURL,
			PlayerURL: results.PlayerURL,
		}
		out.AddContent(video)
	}

	return Success("search complete", map[string]interface{}{
		"query":        args.Query,
		"match_count":  len(results.Shots),
		"compiled_url": results.CompiledURL,
	})
}

func groupShotsByVideo(shots []videodb.SearchShot) []session.SearchData {
	index := make(map[string]int)
	var grouped []session.SearchData
	for _, shot := range shots {
		i, ok := index[shot.VideoID]
		if !ok {
			i = len(grouped)
			index[shot.VideoID] = i
			grouped = append(grouped, session.SearchData{
				VideoID:    shot.VideoID,
				VideoTitle: shot.VideoTitle,
				StreamURL:  shot.StreamURL,
			})
		}
		grouped[i].Shots = append(grouped[i].Shots, session.ShotData{
			SearchScore: shot.Score,
			Start:       shot.Start,
			End:         shot.End,
			Text:        shot.Text,
		})
	}
	return grouped
}
