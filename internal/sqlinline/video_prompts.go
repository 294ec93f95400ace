package sqlinline

const QDeleteVideoPromptsByImage = `--sql 068fc0af-7be2-449d-a6be-a8644897278d
delete from video_prompts
where image_id = $1::uuid
  and user_id = $2::uuid;
`

const QDeleteVideoPromptsByCollection = `--sql 459a5214-f6aa-4afe-be71-a48c0cb2bb6e
delete from video_prompts vp
using images i
where vp.image_id = i.id
  and i.collection_id = $1::uuid
  and i.user_id = $2::uuid;
`
