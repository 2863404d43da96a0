package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"habit-quest-system/utils"
)

// SocialServiceClient fetches the resolved accepted-friendship set from the
// social service. The friend-request workflow lives there; this engine only
// consumes user ids.
type SocialServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewSocialServiceClient(baseURL, token string) *SocialServiceClient {
	return &SocialServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.ServiceClient,
	}
}

// FriendIDs calls /friends on the social service and returns accepted friend ids.
func (c *SocialServiceClient) FriendIDs(userID string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/public/friends?user_id=%s", c.BaseURL, userID)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		log.Printf("SocialService /friends returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("friends lookup failed: %d", resp.StatusCode)
	}

	var out struct {
		FriendIDs []string `json:"friend_ids"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.FriendIDs, nil
}
