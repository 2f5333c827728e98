package contenttype

import (
	"strconv"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
)

// TypeProfilePost is a message left on a user's profile.
const TypeProfilePost = "profile_post"

// MetaProfileUser is the owner of the profile a message was posted on.
const MetaProfileUser = "profile_user"

// ProfilePost searches profile posts. It has no grouping and no joins.
type ProfilePost struct{}

func (ProfilePost) SearchContentTypes() []string {
	return []string{TypeProfilePost}
}

func (ProfilePost) FilterConstraints(h search.SourceHandler, constraints search.Constraints) search.Constraints {
	return constraints
}

// ProcessConstraint handles profile_user.
func (ProfilePost) ProcessConstraint(h search.SourceHandler, name string, value any, all search.Constraints) *search.ProcessedConstraint {
	if name != MetaProfileUser {
		return nil
	}
	ids := search.SplitIDs(value)
	if len(ids) == 0 {
		return nil
	}
	return &search.ProcessedConstraint{Metadata: &search.MetadataConstraint{Key: MetaProfileUser, Values: ids}}
}

func (ProfilePost) OrderClause(order string) []models.OrderPart {
	return nil
}

func (ProfilePost) GroupByType() string {
	return ""
}

func (ProfilePost) JoinStructures(aliases []string) map[string]models.Join {
	return nil
}

// ProfilePostItem builds the index item for a profile post.
func ProfilePostItem(profilePostID, profileUserID int64, message string, postDate, userID int64) *models.IndexItem {
	return &models.IndexItem{
		ContentType: TypeProfilePost,
		ContentID:   profilePostID,
		Message:     message,
		ItemDate:    postDate,
		UserID:      userID,
		Metadata:    []models.MetaField{models.Meta(MetaProfileUser, strconv.FormatInt(profileUserID, 10))},
	}
}
