package protocol

// Request covers the template-management requests (get_data, saveData,
// delete). Only the fields relevant to DataType are populated.
type Request struct {
	Type        string            `json:"type"`
	Screen      string            `json:"screen"`
	DataType    string            `json:"dataType"`
	PID         string            `json:"pid,omitempty"`
	ProcessName string            `json:"processName,omitempty"`
	Name        string            `json:"name,omitempty"`
	ImgType     string            `json:"imgType,omitempty"`
	FileName    string            `json:"fileName,omitempty"`
	FileType    string            `json:"fileType,omitempty"`
	FileData    string            `json:"fileData,omitempty"`
	DataForm    map[string]string `json:"dataForm,omitempty"`
}

func GetData(screen, dataType, pid string) Request {
	return Request{Type: KindGetData, Screen: screen, DataType: dataType, PID: pid}
}

// SaveFile uploads one artwork file as a data URL ("data:image/png;base64,...").
func SaveFile(screen, name, imgType, fileName, fileType, dataURL string) Request {
	return Request{
		Type:     KindSaveData,
		Screen:   screen,
		DataType: DataSaveFile,
		Name:     name,
		ImgType:  imgType,
		FileName: fileName,
		FileType: fileType,
		FileData: dataURL,
	}
}

func SaveProcess(screen string, form map[string]string) Request {
	return Request{Type: KindSaveData, Screen: screen, DataType: DataSaveProcess, DataForm: form}
}

func DeleteTemplate(screen, processName string) Request {
	return Request{Type: KindDelete, Screen: screen, DataType: DataDeleteGameTemplate, ProcessName: processName}
}

// GameTemplate maps a process to the game and system it represents.
type GameTemplate struct {
	ProcessName  string `json:"process_name"`
	WindowTitle  string `json:"window_title"`
	System       string `json:"system"`
	Game         string `json:"game"`
	NamedTitles  string `json:"named_titles"`
	NamedBoxarts string `json:"named_boxarts"`
}

// ProcessInfo is one entry of a processes / infoProcess reply.
type ProcessInfo struct {
	PID   int32  `json:"pid"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}
