package api

// KakaoRequest is the part of an Open Builder skill payload kipbot reads
type KakaoRequest struct {
	UserRequest struct {
		Utterance string `json:"utterance"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"userRequest"`
}

// KakaoResponse is a skill response carrying simpleText outputs
type KakaoResponse struct {
	Version  string        `json:"version"`
	Template KakaoTemplate `json:"template"`
}

type KakaoTemplate struct {
	Outputs []KakaoOutput `json:"outputs"`
}

type KakaoOutput struct {
	SimpleText KakaoSimpleText `json:"simpleText"`
}

type KakaoSimpleText struct {
	Text string `json:"text"`
}

func kakaoText(text string) KakaoResponse {
	return KakaoResponse{
		Version: "2.0",
		Template: KakaoTemplate{
			Outputs: []KakaoOutput{{SimpleText: KakaoSimpleText{Text: text}}},
		},
	}
}
