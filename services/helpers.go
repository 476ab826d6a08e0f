package services

import (
	"github.com/Dosada05/talent-vote/models"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- Хелперы для заполнения URL изображений ---

func resolveAssetURL(key *string, assets AssetURLResolver) *string {
	if assets == nil || derefString(key) == "" {
		return nil
	}
	url := assets.GetPublicURL(*key)
	if url == "" {
		return nil
	}
	return &url
}

func populateParticipantAvatarURL(p *models.Participant, assets AssetURLResolver) {
	if p == nil {
		return
	}
	if url := resolveAssetURL(p.AvatarKey, assets); url != nil {
		p.AvatarURL = url
	}
}

func populateEventAssetURLs(event *models.Event, assets AssetURLResolver) {
	if event == nil || assets == nil {
		return
	}
	if url := resolveAssetURL(event.ImageKey, assets); url != nil {
		event.ImageURL = url
	}
	for ti := range event.Tournaments {
		for pi := range event.Tournaments[ti].Phases {
			participants := event.Tournaments[ti].Phases[pi].Participants
			for i := range participants {
				populateParticipantAvatarURL(&participants[i], assets)
			}
		}
	}
}
