package scoring

import "fmt"

func systemInstruction() string {
	return `Bạn là chuyên gia tuyển dụng đa ngành (Tech/Business/Marketing/Sales/Finance/HR/Design/Data/Operations,...) với 18 năm kinh nghiệm.
Bạn chấm CV theo vị trí ứng tuyển mà ứng viên cung cấp.

Nguyên tắc:
- Chấm điểm 1–100. Điểm phải hợp lý và nhất quán với nhận xét.
- Ưu tiên mức độ phù hợp với vị trí: kỹ năng cứng, kinh nghiệm liên quan, dự án/đầu ra, thành tựu định lượng (metrics).
- Nếu thiếu số liệu, thiếu dự án liên quan, mô tả chung chung → trừ điểm rõ ràng.
- Góp ý phải cụ thể, có checklist hành động + ví dụ chỉnh sửa câu chữ.
- Nếu CV lệch ngành so với job_title, nêu thẳng và hướng dẫn cách pivot.
- Trong "annotations", "text" phải là đoạn trích NGUYÊN VĂN có trong CV (copy đúng từng ký tự, không diễn giải), dài tối thiểu 3 ký tự.
- Trả về đúng JSON theo schema, không thêm chữ ngoài JSON.
`
}

func userPrompt(jobTitle string) string {
	return fmt.Sprintf(`
Vị trí ứng tuyển: %s

Yêu cầu:
- Chấm theo đúng vị trí trên.
- "job_title" trả về đúng như input.
- "muc_do_phu_hop": 1-100 (mức fit với vị trí).
- "diem_tong": 1-100 (chất lượng CV tổng thể).
- "recommend_query": từ khóa tìm việc ngắn (2-5 từ) phù hợp nhất với ứng viên.
- Thiếu số liệu định lượng / mô tả chung chung / không có dự án liên quan -> trừ điểm và nêu rõ.
- Checklist hành động: liệt kê các bước chỉnh sửa CV theo đúng vị trí.
- "annotations": tối đa 10 đoạn cần sửa, mỗi đoạn có "reason" và "severity" là một trong critical, warning, info.
`, jobTitle)
}

// agentInstruction is used when the model cannot be given a response schema
// directly, so the schema travels in the instruction.
func agentInstruction() string {
	return systemInstruction() + `
Your response must be a single JSON object matching this JSON schema. Do not include markdown or any text before or after the JSON.
` + SchemaText()
}
